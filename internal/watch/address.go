package watch

import "strings"

// Subscriber addresses are opaque strings of the form
//
//	platform:kind:ids
//
// where kind is "FriendMessage" (direct chat, ids = user id) or
// "GroupMessage" (group chat, ids = "user_group" or just "group").
// The encoding is kept verbatim in the watchlist document, so equality is
// byte-for-byte string equality on Raw.

type Kind int

const (
	KindUnknown Kind = iota
	KindDirect
	KindGroup
)

const (
	kindDirectToken = "FriendMessage"
	kindGroupToken  = "GroupMessage"
)

type Address struct {
	Raw      string
	Platform string
	Kind     Kind
	UserID   string
	GroupID  string
}

// NewDirect builds a direct-chat address.
func NewDirect(platform, userID string) Address {
	return Address{
		Raw:      platform + ":" + kindDirectToken + ":" + userID,
		Platform: platform,
		Kind:     KindDirect,
		UserID:   userID,
	}
}

// NewGroup builds a group-chat address. userID may be empty when the sender
// is not tracked per-session; such addresses notify the group without a
// mention.
func NewGroup(platform, userID, groupID string) Address {
	ids := groupID
	if userID != "" {
		ids = userID + "_" + groupID
	}
	a := Address{
		Raw:      platform + ":" + kindGroupToken + ":" + ids,
		Platform: platform,
		Kind:     KindGroup,
		UserID:   userID,
		GroupID:  groupID,
	}
	return a
}

// ParseAddress decodes a stored subscriber address. It is total: malformed
// or unrecognized encodings come back with KindUnknown instead of an error,
// since historical hand-edited entries may exist in the watchlist document.
func ParseAddress(raw string) Address {
	a := Address{Raw: raw, Kind: KindUnknown}

	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return a
	}
	a.Platform = parts[0]
	ids := parts[2]
	if a.Platform == "" || ids == "" {
		return Address{Raw: raw, Kind: KindUnknown}
	}

	switch parts[1] {
	case kindDirectToken:
		a.Kind = KindDirect
		a.UserID = ids
	case kindGroupToken:
		a.Kind = KindGroup
		if user, group, found := strings.Cut(ids, "_"); found {
			a.UserID = user
			a.GroupID = group
		} else {
			a.GroupID = ids
		}
	default:
		return Address{Raw: raw, Kind: KindUnknown}
	}
	return a
}

// MentionTargets returns the user ids to mention when notifying this
// address. Direct chats never mention; group chats mention the subscribing
// user when the address carries one.
func (a Address) MentionTargets() []string {
	if a.Kind == KindGroup && a.UserID != "" {
		return []string{a.UserID}
	}
	return nil
}

func (a Address) String() string { return a.Raw }
