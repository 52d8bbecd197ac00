package activity

import (
	"github.com/a2ahost/server/pkg/protocol"
)

// buildParts implements the Activity → protocol part list shared by both
// ActivityToArtifact and ActivityToMessage: a TextPart iff text is
// non-empty, a DataPart iff value is present, one FilePart per attachment
// that carries a URI or inline content, and one DataPart per entity (with
// its JSON-schema metadata), skipping well-known stream-info entities.
func buildParts(a *Activity) []protocol.Part {
	var parts []protocol.Part

	if a.Text != "" {
		parts = append(parts, protocol.Part{Kind: protocol.PartKindText, Text: a.Text})
	}

	if a.Value != nil {
		parts = append(parts, protocol.Part{Kind: protocol.PartKindData, Data: a.Value})
	}

	for _, att := range a.Attachments {
		if att.ContentURL == "" && att.Content == "" {
			continue
		}
		fp := &protocol.FilePart{
			Name:     att.Name,
			MimeType: att.ContentType,
		}
		if att.ContentURL != "" {
			fp.URI = att.ContentURL
		} else {
			fp.Bytes = []byte(att.Content)
		}
		parts = append(parts, protocol.Part{Kind: protocol.PartKindFile, File: fp})
	}

	for _, ent := range a.Entities {
		if ent.Type == wellKnownStreamInfoEntityType {
			continue
		}
		schema := protocol.JSONSchemaFor(ent.Value)
		parts = append(parts, protocol.Part{
			Kind: protocol.PartKindData,
			Data: ent.Value,
			Metadata: map[string]any{
				"entityType": ent.Type,
				"schema":     schema,
			},
		})
	}

	return parts
}

// ActivityToArtifact projects an Activity into an Artifact. Returns nil
// when the activity carries no renderable content, per the empty-artifact
// edge policy (null rather than an empty object).
func ActivityToArtifact(a *Activity, artifactID, name string) *protocol.Artifact {
	parts := buildParts(a)
	if len(parts) == 0 {
		return nil
	}
	return &protocol.Artifact{
		ArtifactID: artifactID,
		Name:       name,
		Parts:      parts,
	}
}

// ActivityToMessage projects an Activity into a Message, for producers that
// chose message-form delivery (a non-streaming final reply, or an
// informative status update).
func ActivityToMessage(a *Activity, messageID, taskID, contextID string, role protocol.MessageRole) *protocol.Message {
	parts := buildParts(a)
	return &protocol.Message{
		MessageID: messageID,
		TaskID:    taskID,
		ContextID: contextID,
		Role:      role,
		Parts:     parts,
	}
}

// ProtocolToActivity projects a Message back into an Activity: all TextPart
// text is concatenated into Activity.Text, each FilePart becomes an
// Attachment, and each DataPart is folded into Activity.Value (the last
// DataPart wins when more than one is present). ChannelID is fixed to
// ChannelIDA2A; from/recipient are supplied by the caller from ingress
// direction.
func ProtocolToActivity(m *protocol.Message, from, recipient ChannelAccount) *Activity {
	a := &Activity{
		Type:         "message",
		ID:           m.MessageID,
		ChannelID:    ChannelIDA2A,
		Conversation: ConversationReference{ID: m.ContextID},
		From:         from,
		Recipient:    recipient,
	}

	for _, p := range m.Parts {
		switch p.Kind {
		case protocol.PartKindText:
			a.Text += p.Text
		case protocol.PartKindFile:
			if p.File == nil {
				continue
			}
			att := Attachment{
				Name:        p.File.Name,
				ContentType: p.File.MimeType,
			}
			if p.File.URI != "" {
				att.ContentURL = p.File.URI
			} else {
				att.Content = string(p.File.Bytes)
			}
			a.Attachments = append(a.Attachments, att)
		case protocol.PartKindData:
			a.Value = p.Data
		}
	}

	return a
}
