// Package client is a small Go SDK for talking to an execpool-server
// instance over its admin HTTP API, plus a WebSocket client for the
// live event feed.
//
// # Basic usage
//
//	c := client.New("http://localhost:8090", client.WithAPIKey("secret"))
//
//	result, err := c.Submit(ctx, "echo", []interface{}{"hi"}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err = c.Wait(ctx, result.ID, 200*time.Millisecond)
//
// # Live events
//
//	if err := c.ConnectEvents(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	for event := range c.Events() {
//	    fmt.Printf("event: %s\n", event.Type)
//	}
package client
