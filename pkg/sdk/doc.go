// Package sdk provides a typed Go client for the mapping generation server.
//
// The client exposes one method per endpoint, validates response payloads,
// and applies an opt-in per-call timeout and opt-in retry of idempotent
// fetches via fortify.
//
// Usage:
//
//	c := sdk.NewClient("http://localhost:8001")
//	up, _ := c.Upload(ctx, flow.Kind856, []sdk.Document{{Slot: flow.SlotPDF, Name: "spec.pdf", Body: f}})
//	gen, _ := c.Generate(ctx, flow.Kind856, up.SessionID)
//	fmt.Println(gen.Grid.Len())
package sdk
