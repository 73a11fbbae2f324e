// Package chat implements the conversational session engine.
//
// # Events
//
// Provider output arrives as providers.RawUnit values. Classify maps each unit
// to one of four events (Content, Metadata, TokenUsage, Error) and Format
// serializes an event for one of two wire protocols:
//
//   - ProtocolText: content is raw text; metadata and token usage are framed events;
//     errors are the literal "[ERROR]: <msg>".
//   - ProtocolJSON: content is framed as {"data": "<text>"}; errors are
//     {"data": "[ERROR]: <msg>"}.
//
// ErrorEvent is terminal: a run emits at most one and nothing after it.
//
// # Conversations
//
// A Conversation owns its message history and one provider client. Run returns
// a lazy iter.Seq[string] of wire-ready fragments; every pull reads at most one
// unit from the provider stream, so a consumer that stops ranging stops the
// upstream read. Provider failures never escape Run; they become the terminal
// error fragment.
//
// # Sessions
//
// SessionStore maps session keys ("<category>-<uuid>") to conversations with a
// lazy TTL sweep performed whenever a new session is created.
package chat
