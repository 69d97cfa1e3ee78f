package record

import "fmt"

// Kind enumerates record types sharing the envelope. The set is closed
// per protocol version; decoding an unknown kind fails with
// UnknownVariant rather than guessing at semantics.
type Kind uint16

const (
	// KindKeySchedule declares the author's subkeys. Identity-addressed.
	KindKeySchedule Kind = 0x1

	// KindProfile carries the author's profile. Identity-addressed.
	KindProfile Kind = 0x2

	// KindMicroblogRoot is a root microblog post.
	KindMicroblogRoot Kind = 0x3

	// KindReplyComment is a reply to another record.
	KindReplyComment Kind = 0x4

	// KindBlogPost is a long-form post.
	KindBlogPost Kind = 0x5

	// KindChatMessage is a chat message.
	KindChatMessage Kind = 0x6

	// KindNote is a free-form note.
	KindNote Kind = 0x7
)

// Addressing selects how a record's address is derived.
type Addressing int

const (
	// ContentAddressed records derive their address from their signed
	// bytes; any bit flip changes the address.
	ContentAddressed Addressing = iota

	// IdentityAddressed records derive their address from the author's
	// public key (and kind); the latest record at the address replaces
	// earlier ones.
	IdentityAddressed
)

// Known reports whether k is a kind this protocol version understands.
func (k Kind) Known() bool {
	return k >= KindKeySchedule && k <= KindNote
}

// Addressing returns the address derivation rule for the kind.
func (k Kind) Addressing() Addressing {
	switch k {
	case KindKeySchedule, KindProfile:
		return IdentityAddressed
	}
	return ContentAddressed
}

func (k Kind) String() string {
	switch k {
	case KindKeySchedule:
		return "KeySchedule"
	case KindProfile:
		return "Profile"
	case KindMicroblogRoot:
		return "MicroblogRoot"
	case KindReplyComment:
		return "ReplyComment"
	case KindBlogPost:
		return "BlogPost"
	case KindChatMessage:
		return "ChatMessage"
	case KindNote:
		return "Note"
	}
	return fmt.Sprintf("Kind(%#x)", uint16(k))
}
