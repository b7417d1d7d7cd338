// Package chatapi serves the session-authenticated chat HTTP surface: the
// caller's chats, chat creation, message history pages and the user list.
package chatapi
