// Package decorator includes the DIDComm decorators shared by the protocol
// messages: thread and attachment.
package decorator

import (
	"encoding/base64"
	"errors"
)

// Thread is the ~thread decorator. ID is the thread ID and PID the parent
// thread ID.
type Thread struct {
	ID  string `json:"thid,omitempty"`
	PID string `json:"pthid,omitempty"`
}

// NewThread returns a thread decorator. PID is left empty when it's same as ID.
func NewThread(ID, PID string) *Thread {
	realPID := ""
	if ID != PID {
		realPID = PID
	}
	return &Thread{ID: ID, PID: realPID}
}

// CheckThread makes sure the thread has ID. Messages without ~thread start a
// new thread which ID is the message ID.
func CheckThread(thread *Thread, ID string) *Thread {
	if thread == nil {
		return &Thread{ID: ID}
	}
	if thread.ID == "" {
		thread.ID = ID
	}
	return thread
}

// Attachment is the ~attach decorator used in the credential messages.
type Attachment struct {
	ID       string         `json:"@id,omitempty"`
	MimeType string         `json:"mime-type,omitempty"`
	Data     AttachmentData `json:"data"`
}

// AttachmentData carries the attached content in base64.
type AttachmentData struct {
	Base64 string `json:"base64,omitempty"`
}

// NewAttachment returns an attachment which carries data as base64.
func NewAttachment(ID, mimeType string, data []byte) Attachment {
	return Attachment{
		ID:       ID,
		MimeType: mimeType,
		Data:     AttachmentData{Base64: base64.StdEncoding.EncodeToString(data)},
	}
}

// Bytes returns the decoded attachment content.
func (a Attachment) Bytes() ([]byte, error) {
	if a.Data.Base64 == "" {
		return nil, errors.New("attachment has no data")
	}
	return base64.StdEncoding.DecodeString(a.Data.Base64)
}
