package hakomari

// frameType distinguishes request and reply frames (spec §4.3).
type frameType uint8

const (
	frameRequest frameType = 0
	frameReply   frameType = 1
)

// Built-in, protocol-reserved verbs. A verb beginning with '@' is reserved
// by the protocol; application-defined verbs must not use that prefix.
const (
	VerbEnumerate            = "@enumerate"
	VerbCreate               = "@create"
	VerbDestroy              = "@destroy"
	VerbGetPassphraseScreen  = "@get-passphrase-screen"
	VerbInputPassphrase      = "@input-passphrase"
)

// defaultPayloadChunk is the default chunk size the engine pulls from a
// caller's PayloadSource (spec §4.3).
const defaultPayloadChunk = 1024
