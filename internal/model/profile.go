// Package model defines the data structures used throughout the application.
package model

import "time"

// Profile is the public face of an account.
//
// The durable account identity (AccountID) is issued by the external identity
// provider and never shown to other users. What other users see is the
// ShortID — an 8-character base62 handle that can be shared, looked up for
// guest library views, and regenerated without disturbing the account itself.
//
// We still generate our own internal record ID (xid) so primary keys are not
// tied to the identity provider's numbering scheme.
type Profile struct {
	ID          string    `json:"id"          db:"id"`
	AccountID   string    `json:"accountId"   db:"account_id"` // provider-issued durable key
	DisplayName string    `json:"displayName" db:"display_name"`
	AvatarURL   string    `json:"avatarUrl"   db:"avatar_url"` // may be empty
	ShortID     string    `json:"shortId"     db:"short_id"`   // 8-char base62 public handle
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`
}
