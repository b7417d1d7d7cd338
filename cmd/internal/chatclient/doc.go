// Package chatclient is the client half of huddle: it reconciles the live
// new_message stream with cursor-paginated history into one ordered,
// duplicate-free timeline.
//
// A Timeline owns the merged view of one chat. An HTTPFetcher feeds it
// history pages and a Socket feeds it live events:
//
//	tl := chatclient.NewTimeline(fetcher, 50)
//	_ = tl.Mount(ctx, chatID)
//	for env := range sock.Events() {
//		if m, ok := chatclient.LiveMessage(env); ok {
//			tl.OnLive(m)
//		}
//	}
package chatclient
