// Package httpclient sends the requests of crankprom's built-in load producer.
//
// [Endpoints] turns the load configuration into request templates, each with a test
// label and a weight. Without explicit endpoints the target is the only template and its
// URL path is the label.
//
//	eps, err := httpclient.Endpoints(cfg.Load)
//	requester, err := httpclient.NewRequester(httpclient.NewClient(cfg.Load.Timeout), eps, aggregator)
//
// A [Requester] picks an endpoint by weight, sends one request and records an
// [aggregate.Result] with connect, first-byte and full response times collected through
// net/http/httptrace. Transport failures are recorded with the "error" response code;
// responses with status 400 and above are failures and are returned as
// [runner.HTTPError].
//
// [NewClient] returns a client with pooled keep-alive connections sized for load
// generation.
package httpclient
