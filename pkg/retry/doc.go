// Package retry provides exponential backoff for transient failures.
//
// Two presets cover the gateway's needs. DefaultConfig gives a short
// bounded schedule for one-shot operations. Dialer retries forever at a
// fixed two-second interval, which is how outbound connections chase a
// peer that is not up yet:
//
//	conn, err := retry.DoWithResult(ctx, retry.Dialer(), func() (net.Conn, error) {
//	    return dialer.DialContext(ctx, "tcp", address)
//	})
//
// All waits respect context cancellation, both between attempts and
// during the backoff sleep.
package retry
