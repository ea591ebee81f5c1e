package reconcile_test

import (
	"testing"

	"github.com/okian/attribd/internal/domain/reconcile"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDelta(t *testing.T) {
	Convey("Given a checker", t, func() {
		c := reconcile.New(0.25)

		Convey("Then the delta is symmetric", func() {
			So(c.Delta(100, 80), ShouldAlmostEqual, c.Delta(80, 100), 1e-9)
		})

		Convey("Then zero on both sides is zero delta", func() {
			So(c.Delta(0, 0), ShouldEqual, 0)
		})

		Convey("Then one zero side is full delta", func() {
			So(c.Delta(100, 0), ShouldEqual, 1)
			So(c.Delta(0, 100), ShouldEqual, 1)
		})

		Convey("Then the delta is relative to the larger side", func() {
			So(c.Delta(100, 75), ShouldAlmostEqual, 0.25, 1e-9)
			So(c.Delta(75, 100), ShouldAlmostEqual, 0.25, 1e-9)
		})
	})
}

func TestCheck(t *testing.T) {
	Convey("Given a checker with a 25 percent threshold", t, func() {
		c := reconcile.New(0.25)

		Convey("When the sides agree within the threshold", func() {
			_, flagged := c.Check("facebook / paid_social", 100, 80)

			Convey("Then no anomaly is raised", func() {
				So(flagged, ShouldBeFalse)
			})
		})

		Convey("When the delta sits exactly on the threshold", func() {
			_, flagged := c.Check("facebook / paid_social", 100, 75)
			So(flagged, ShouldBeFalse)
		})

		Convey("When the platform over-reports", func() {
			a, flagged := c.Check("facebook / paid_social", 50, 100)

			Convey("Then the anomaly names the over-reporting cause", func() {
				So(flagged, ShouldBeTrue)
				So(a.Dimension, ShouldEqual, "facebook / paid_social")
				So(a.Delta, ShouldAlmostEqual, 0.5, 1e-9)
				So(a.LikelyCause, ShouldContainSubstring, "over-reporting")
			})
		})

		Convey("When the platform under-reports", func() {
			a, flagged := c.Check("google / cpc", 100, 50)

			Convey("Then the anomaly names the under-reporting cause", func() {
				So(flagged, ShouldBeTrue)
				So(a.LikelyCause, ShouldContainSubstring, "under-reporting")
			})
		})
	})

	Convey("Given a non-positive threshold", t, func() {
		c := reconcile.New(0)

		Convey("Then the default threshold applies", func() {
			_, flagged := c.Check("x", 100, 80)
			So(flagged, ShouldBeFalse)
			_, flagged = c.Check("x", 100, 60)
			So(flagged, ShouldBeTrue)
		})
	})
}
