// Package protocol defines the WebSocket message protocol between a
// collaborator and the room it has joined.
package protocol

import (
	"encoding/json"

	"github.com/shiv248/quillpad/pkg/selop"
)

// UserInfo represents a connected user's display information.
type UserInfo struct {
	Name string `json:"name"`
	Hue  uint32 `json:"hue"`
}

// UserOperation pairs a committed CharSelOp with the user who authored it.
type UserOperation struct {
	ID        uint64          `json:"id"`
	Operation *selop.CharSelOp `json:"operation"`
}

// ClientMsg represents messages sent from client to server. Only one
// field should be set per message (tagged union pattern).
type ClientMsg struct {
	Edit        *EditMsg             `json:"Edit,omitempty"`
	SetLanguage *string              `json:"SetLanguage,omitempty"`
	ClientInfo  *UserInfo            `json:"ClientInfo,omitempty"`
	CursorOnly  []selop.CharSelection `json:"CursorOnly,omitempty"`
}

// EditMsg represents a text edit (and the author's resulting selection)
// submitted against a known revision.
type EditMsg struct {
	Revision  int              `json:"revision"`
	Operation *selop.CharSelOp `json:"operation"`
}

// ServerMsg represents messages sent from server to client. Only one
// field should be set per message (tagged union pattern).
type ServerMsg struct {
	Identity   *uint64        `json:"Identity,omitempty"`
	History    *HistoryMsg    `json:"History,omitempty"`
	Language   *LanguageMsg   `json:"Language,omitempty"`
	UserInfo   *UserInfoMsg   `json:"UserInfo,omitempty"`
	UserCursor *UserCursorMsg `json:"UserCursor,omitempty"`
	OTP        *OTPMsg        `json:"OTP,omitempty"`
}

// HistoryMsg sends a batch of committed operations to the client.
type HistoryMsg struct {
	Start      int             `json:"start"`
	Operations []UserOperation `json:"operations"`
}

// UserInfoMsg broadcasts user connection/disconnection events.
type UserInfoMsg struct {
	ID   uint64    `json:"id"`
	Info *UserInfo `json:"info,omitempty"` // nil if disconnected
}

// UserCursorMsg broadcasts a user's rebased selections.
type UserCursorMsg struct {
	ID         uint64                `json:"id"`
	Selections []selop.CharSelection `json:"selections"`
}

// LanguageMsg broadcasts a language change.
type LanguageMsg struct {
	Language string `json:"language"`
	UserID   uint64 `json:"user_id"`
	UserName string `json:"user_name"`
}

// OTPMsg broadcasts an OTP change to authenticated clients.
type OTPMsg struct {
	OTP      *string `json:"otp"`
	UserID   uint64  `json:"user_id"`
	UserName string  `json:"user_name"`
}

// MarshalJSON keeps only the single populated field in the wire form.
func (m *ServerMsg) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{})

	switch {
	case m.Identity != nil:
		result["Identity"] = *m.Identity
	case m.History != nil:
		result["History"] = m.History
	case m.Language != nil:
		result["Language"] = m.Language
	case m.UserInfo != nil:
		result["UserInfo"] = m.UserInfo
	case m.UserCursor != nil:
		result["UserCursor"] = m.UserCursor
	case m.OTP != nil:
		result["OTP"] = m.OTP
	}

	return json.Marshal(result)
}

// UnmarshalJSON accepts whichever single field is present in the wire form.
func (m *ClientMsg) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if editData, ok := raw["Edit"]; ok {
		var edit EditMsg
		if err := json.Unmarshal(editData, &edit); err != nil {
			return err
		}
		m.Edit = &edit
	}

	if langData, ok := raw["SetLanguage"]; ok {
		var lang string
		if err := json.Unmarshal(langData, &lang); err != nil {
			return err
		}
		m.SetLanguage = &lang
	}

	if infoData, ok := raw["ClientInfo"]; ok {
		var info UserInfo
		if err := json.Unmarshal(infoData, &info); err != nil {
			return err
		}
		m.ClientInfo = &info
	}

	if cursorData, ok := raw["CursorOnly"]; ok {
		var sels []selop.CharSelection
		if err := json.Unmarshal(cursorData, &sels); err != nil {
			return err
		}
		m.CursorOnly = sels
	}

	return nil
}

// Helper constructors for server messages.

func NewIdentityMsg(id uint64) *ServerMsg {
	return &ServerMsg{Identity: &id}
}

func NewHistoryMsg(start int, ops []UserOperation) *ServerMsg {
	return &ServerMsg{History: &HistoryMsg{Start: start, Operations: ops}}
}

func NewLanguageMsg(lang string, userID uint64, userName string) *ServerMsg {
	return &ServerMsg{Language: &LanguageMsg{Language: lang, UserID: userID, UserName: userName}}
}

func NewUserInfoMsg(id uint64, info *UserInfo) *ServerMsg {
	return &ServerMsg{UserInfo: &UserInfoMsg{ID: id, Info: info}}
}

func NewUserCursorMsg(id uint64, selections []selop.CharSelection) *ServerMsg {
	return &ServerMsg{UserCursor: &UserCursorMsg{ID: id, Selections: selections}}
}

func NewOTPMsg(otp *string, userID uint64, userName string) *ServerMsg {
	return &ServerMsg{OTP: &OTPMsg{OTP: otp, UserID: userID, UserName: userName}}
}
