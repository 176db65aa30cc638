// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package keystate

import (
	"bytes"
	"encoding/json"

	"github.com/aplane-algo/qrsign/internal/qrerr"
)

// BackupType is the type tag of a key pair backup file.
const BackupType = "qr_key_pair"

// DefaultBackupFile is the file name used when exporting without a path.
const DefaultBackupFile = "qr_key.json"

// Backup is the file representation of a Pair. It is never put in a QR code.
type Backup struct {
	Type    string          `json:"type"`
	Public  json.RawMessage `json:"public"`
	Private json.RawMessage `json:"private"`
}

// ParseBackup validates the backup shape: a JSON object with type
// "qr_key_pair" and non-empty public and private members.
// All failures are *qrerr.BackupFormatError.
func ParseBackup(data []byte) (*Backup, error) {
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &qrerr.BackupFormatError{Reason: "invalid JSON", Err: err}
	}
	if b.Type != BackupType {
		return nil, &qrerr.BackupFormatError{Reason: "type is not " + BackupType}
	}
	if isEmptyMember(b.Public) {
		return nil, &qrerr.BackupFormatError{Reason: "missing public key"}
	}
	if isEmptyMember(b.Private) {
		return nil, &qrerr.BackupFormatError{Reason: "missing private key"}
	}
	return &b, nil
}

// Marshal encodes the backup as indented JSON.
func (b *Backup) Marshal() ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// isEmptyMember treats absent, null, false, 0, "" and {} as missing.
func isEmptyMember(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return true
	}
	switch string(v) {
	case "null", "false", "0", `""`:
		return true
	}
	if v[0] != '{' {
		// A JWK is always an object.
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(v, &fields); err != nil {
		return true
	}
	return len(fields) == 0
}
