package api

type serverOptions struct {
	shopifySecret string
	stripeSecret  string
}

// ServerOption customizes the API server.
type ServerOption func(*serverOptions)

// WithShopifySecret enables HMAC verification on the Shopify webhook.
func WithShopifySecret(secret string) ServerOption {
	return func(o *serverOptions) { o.shopifySecret = secret }
}

// WithStripeSecret requires a Stripe-Signature header on the Stripe webhook.
func WithStripeSecret(secret string) ServerOption {
	return func(o *serverOptions) { o.stripeSecret = secret }
}

func applyServerOptions(opts []ServerOption) serverOptions {
	var o serverOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
