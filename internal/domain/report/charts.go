package report

import "sort"

// buildCharts derives the daily series and winner/loser highlights.
func (b *Builder) buildCharts(d *dataset, agg *partial, table Table) Charts {
	costByDay := make(map[string]float64)
	clicksByDay := make(map[string]int)
	for _, s := range d.spend {
		costByDay[s.Date] += s.Cost
		clicksByDay[s.Date] += s.Clicks
	}

	var series []TimePoint
	var cumulative []CumulativePoint
	var runRevenue, runCost float64
	for _, day := range d.params.days() {
		cost := costByDay[day]
		clicks := clicksByDay[day]
		var orders, revenue float64
		if a := agg.days[day]; a != nil {
			orders, revenue = a.orders, a.revenue
		}
		p := TimePoint{
			Date:    day,
			Cost:    round2(cost),
			Revenue: round2(revenue),
			Profit:  round2(revenue - cost),
			Clicks:  clicks,
			Orders:  round2(orders),
			ROAS:    safeDiv(revenue, cost),
		}
		p.CVR = safeDiv(orders*100, float64(clicks))
		series = append(series, p)

		runRevenue += revenue
		runCost += cost
		cumulative = append(cumulative, CumulativePoint{
			Date:    day,
			Revenue: round2(runRevenue),
			Cost:    round2(runCost),
			Profit:  round2(runRevenue - runCost),
		})
	}

	winners := make([]NameProfit, 0, 5)
	for _, r := range table.Rows {
		winners = append(winners, NameProfit{Name: r.Name, Profit: r.Metrics.Profit})
		if len(winners) == 5 {
			break
		}
	}
	byWorst := make([]Row, len(table.Rows))
	copy(byWorst, table.Rows)
	sort.SliceStable(byWorst, func(i, j int) bool {
		if byWorst[i].Metrics.Profit != byWorst[j].Metrics.Profit {
			return byWorst[i].Metrics.Profit < byWorst[j].Metrics.Profit
		}
		return byWorst[i].Name < byWorst[j].Name
	})
	losers := make([]NameProfit, 0, 5)
	for _, r := range byWorst {
		losers = append(losers, NameProfit{Name: r.Name, Profit: r.Metrics.Profit})
		if len(losers) == 5 {
			break
		}
	}

	return Charts{
		TimeSeries: series,
		Cumulative: cumulative,
		TopWinners: winners,
		TopLosers:  losers,
	}
}
