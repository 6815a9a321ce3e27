package natsadapter

// FeedControlSubject carries viewer attach/detach announcements from the
// API to the feed worker.
const FeedControlSubject = "oficios.feed.control"

// FeedControl tells the feed worker to start or stop projecting for a
// viewer. Published by the WebSocket relay on connect and disconnect.
type FeedControl struct {
	Action   string `json:"action"` // "attach" | "detach"
	ViewerID string `json:"viewer_id"`
	Role     string `json:"role"` // "provider" | "requester"
}
