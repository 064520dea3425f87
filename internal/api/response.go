// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package api

import "time"

// VersionResponse is the response sent to clients by the Version API.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// StatusResponse is the response sent to clients by the Status API.
type StatusResponse struct {
	Name      string        `json:"name"`
	Identity  string        `json:"identity"`
	Version   string        `json:"version"`
	OS        string        `json:"os"`
	Arch      string        `json:"arch"`
	UpTime    time.Duration `json:"uptime"`
	Replicas  int           `json:"replicas"`
	Byzantine int           `json:"byzantine"`
	Quorum    int           `json:"quorum"`
	Accounts  int           `json:"accounts"`
	Proposals int           `json:"proposals"` // broadcast instances awaiting delivery
}

// ErrorLogEvent is sent to clients subscribed to the ErrorLog API.
type ErrorLogEvent struct {
	Message string `json:"message"`
}
