package models

import "errors"

// Per-request failures surfaced to callers. All of them are rejected before
// any broker interaction, so a caller that receives one of these knows no
// side effect happened.
var (
	ErrInvalidParams       = errors.New("invalid parameters")
	ErrNotFriend           = errors.New("recipient is not your friend")
	ErrNotMember           = errors.New("you are no longer a member of this group")
	ErrGroupNotFound       = errors.New("group does not exist or has been disbanded")
	ErrNotConnected        = errors.New("no live session for user")
	ErrMessageNotFound     = errors.New("message does not exist")
	ErrNotOwner            = errors.New("message was not sent by you")
	ErrRecallWindowExpired = errors.New("message is too old to recall")
)
