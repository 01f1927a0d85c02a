package platforms

import "context"

type DiscordAdapter struct {
	client *HTTPClient
}

func NewDiscordAdapter(client *HTTPClient) *DiscordAdapter {
	return &DiscordAdapter{client: client}
}

func (a *DiscordAdapter) Name() string {
	return "discord"
}

func (a *DiscordAdapter) Send(ctx context.Context, endpoint, _ string, msg Message) error {
	type embedField struct {
		Name   string `json:"name"`
		Value  string `json:"value"`
		Inline bool   `json:"inline"`
	}
	fields := make([]embedField, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		fields = append(fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	embed := map[string]any{
		"title":       msg.Title,
		"description": msg.Description,
		"fields":      fields,
		"color":       msg.Color,
	}
	if msg.Timestamp != "" {
		embed["timestamp"] = msg.Timestamp
	}
	if msg.Footer != "" {
		embed["footer"] = map[string]string{"text": msg.Footer}
	}
	payload := map[string]any{
		"content": msg.Content,
		"embeds":  []map[string]any{embed},
	}
	return a.client.PostJSON(ctx, endpoint, nil, payload)
}
