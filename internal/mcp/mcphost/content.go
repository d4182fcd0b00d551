package mcphost

import (
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// flattenContent renders a tool result as plain text for the model.
//
// Text blocks are kept verbatim. Binary blocks (image, audio, blob resources)
// are replaced by a short placeholder naming their MIME type and size, since
// the chat completion API only accepts text in tool messages. When the result
// carries structured content and no text block, the structured value is
// rendered as JSON.
func flattenContent(res *mcpsdk.CallToolResult) string {
	if res == nil {
		return ""
	}

	parts := make([]string, 0, len(res.Content))
	hasText := false
	for _, c := range res.Content {
		switch v := c.(type) {
		case *mcpsdk.TextContent:
			parts = append(parts, v.Text)
			hasText = true
		case *mcpsdk.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes]", mimeOr(v.MIMEType), len(v.Data)))
		case *mcpsdk.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio %s, %d bytes]", mimeOr(v.MIMEType), len(v.Data)))
		case *mcpsdk.ResourceLink:
			parts = append(parts, fmt.Sprintf("[resource %s %s]", v.Name, v.URI))
		case *mcpsdk.EmbeddedResource:
			parts = append(parts, flattenResource(v.Resource))
		default:
			parts = append(parts, fmt.Sprintf("[unsupported content %T]", c))
		}
	}

	if !hasText && res.StructuredContent != nil {
		if data, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, string(data))
		}
	}

	return strings.Join(parts, "\n")
}

// flattenResource renders an embedded resource: its text when present,
// otherwise a placeholder.
func flattenResource(rc *mcpsdk.ResourceContents) string {
	if rc == nil {
		return "[empty resource]"
	}
	if rc.Text != "" {
		return rc.Text
	}
	return fmt.Sprintf("[resource %s %s, %d bytes]", rc.URI, mimeOr(rc.MIMEType), len(rc.Blob))
}

func mimeOr(mime string) string {
	if mime == "" {
		return "application/octet-stream"
	}
	return mime
}
