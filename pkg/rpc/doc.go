// Package rpc implements the peer channel of the wallet node: JSON-RPC 2.0
// messages exchanged over websockets with authenticated local peers.
//
// # Peers and roles
//
// Every connection is authenticated once, during the HTTP upgrade, by the
// node's AuthenticateFunc. The role it returns ("relay", "ui", ...) stays
// attached to the connection; the ConnectionHub indexes connections by role
// so that notifications can be addressed to "whoever plays the UI" rather
// than to a specific socket:
//
//	node, _ := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{
//		Logger:       logger,
//		Authenticate: auth.Authenticate,
//	})
//	http.Handle("/ui", node)
//
//	err := node.Notify("ui", "ui_toast", toast) // rpc.ErrNoPeer when no UI is connected
//
// # Handlers and middleware
//
// Handlers receive a *Context and answer with Succeed or Fail. Middleware is
// an ordinary Handler calling c.Next. Groups scope middleware to a set of
// methods, which is how methods are restricted to one peer role:
//
//	ui := node.NewGroup("ui")
//	ui.Use(rpc.RequireRole("ui"))
//	ui.Handle("ui_approveRequest", func(c *rpc.Context) {
//		var params approveParams
//		if !c.Bind(&params) {
//			return
//		}
//		c.Succeed(nil)
//	})
//
// # Errors
//
// Only Error values reach peers with their message intact. Any other error
// passed to Fail is replaced with the fallback message, so internal details
// never leave the process. Error codes follow JSON-RPC 2.0 and EIP-1193.
package rpc
