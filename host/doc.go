// Package host is the calling side of the boundary.
//
// A Caller lowers Values into caller-owned buffers, runs a routed export
// and returns a Result whose Close runs the post-return hook:
//
//	c := host.New(table, mem)
//	res, err := c.Call("foo#concat", transcoder.NewString("foo"), transcoder.NewString("bar"))
//	if err != nil {
//	    return err
//	}
//	defer res.Close()
//	v, err := res.Value()
//
// Invoke wraps the same steps around a callback and CallNative works with
// plain Go values.
package host
