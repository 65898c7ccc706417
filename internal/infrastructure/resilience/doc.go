/*
Package resilience provides the circuit breakers guarding outbound calls made
on behalf of source scripts.

A Breaker moves between three states:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open

Group keys breakers by remote host, so one dead upstream only fails fast for
the scripts that talk to it.

	hosts := resilience.NewGroup("script-http", resilience.Settings{Timeout: 30 * time.Second})
	resp, err := resilience.Execute(hosts.Get(u.Host), func() (*resty.Response, error) {
		return req.Get(u.String())
	})
*/
package resilience
