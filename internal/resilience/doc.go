// Package resilience provides reliability and fault tolerance patterns for the application.
// It includes the bounded fixed-delay retry used around session refresh and
// circuit breakers for provider API calls.
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.ProviderAPIConfig("bluesky"))
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return callProviderAPI()
//	})
//
//	err := retry.WithFixedDelay(ctx, retry.SessionRefreshConfig(), func() error {
//	    return refreshSession()
//	})
package resilience
