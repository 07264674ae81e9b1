/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package checkpoint

import (
	"fmt"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	"github.com/AMD-AIG-AIMA/Custos/pkg/json"
)

// Payload schemas, one per checkpoint type tag. The payload column stores
// the JSON form; drivers treat a decoded payload as the authoritative
// resume position.

type MailFolderPayload struct {
	FolderId      string `json:"folderId"`
	FolderName    string `json:"folderName"`
	DeltaToken    string `json:"deltaToken,omitempty"`
	ItemsInFolder int64  `json:"itemsInFolder"`
}

type OneDrivePayload struct {
	DriveId      string `json:"driveId"`
	DeltaToken   string `json:"deltaToken,omitempty"`
	ItemsInDrive int64  `json:"itemsInDrive"`
}

type SharePointPayload struct {
	SiteId      string `json:"siteId"`
	ListId      string `json:"listId"`
	DeltaToken  string `json:"deltaToken,omitempty"`
	ItemsInList int64  `json:"itemsInList"`
}

type TeamsPayload struct {
	TeamId         string `json:"teamId"`
	ChannelId      string `json:"channelId"`
	LastMessageId  string `json:"lastMessageId,omitempty"`
	ItemsInChannel int64  `json:"itemsInChannel"`
}

type BatchPayload struct {
	BatchIndex int    `json:"batchIndex"`
	Context    []byte `json:"context,omitempty"`
}

// ParsePayload decodes raw into the schema selected by checkpointType.
func ParsePayload(checkpointType string, raw []byte) (interface{}, error) {
	var (
		out interface{}
		err error
	)
	switch checkpointType {
	case client.CheckpointMailFolder:
		p := MailFolderPayload{}
		err = json.UnmarshalStrict(raw, &p)
		out = p
	case client.CheckpointOneDrive:
		p := OneDrivePayload{}
		err = json.UnmarshalStrict(raw, &p)
		out = p
	case client.CheckpointSharePoint:
		p := SharePointPayload{}
		err = json.UnmarshalStrict(raw, &p)
		out = p
	case client.CheckpointTeams:
		p := TeamsPayload{}
		err = json.UnmarshalStrict(raw, &p)
		out = p
	case client.CheckpointBatch:
		p := BatchPayload{}
		err = json.UnmarshalStrict(raw, &p)
		out = p
	default:
		return nil, fmt.Errorf("unknown checkpoint type %q", checkpointType)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// declaredItems returns the item count a payload claims for its scope, or
// -1 when the type carries none.
func declaredItems(payload interface{}) int64 {
	switch p := payload.(type) {
	case MailFolderPayload:
		return p.ItemsInFolder
	case OneDrivePayload:
		return p.ItemsInDrive
	case SharePointPayload:
		return p.ItemsInList
	case TeamsPayload:
		return p.ItemsInChannel
	default:
		return -1
	}
}
