// Package client implements the client of the reverse server.
//
// Every message is sent on its own connection: the client dials the server,
// writes one length prefixed frame and reads the reply frame until the server
// closes the connection. Dial and exchange failures are retried by the
// transport with exponential backoff.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoint:      "127.0.0.1:8080",
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	}
//
//	c, err := client.NewReverseClient(config, tcp.NewTCPClientTransport())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer c.Close()
//
//	raw, _ := c.SendRaw([]byte("cat"))     // []byte{3, 't', 'a', 'c'}
//	reversed, _ := c.Reverse([]byte("cat")) // []byte("tac")
package client
