package piapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// streamDone is the sentinel payload closing an SSE chat-completions stream.
const streamDone = "[DONE]"

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CollectStream reassembles a chat-completions SSE stream into the full
// message content. This is pure parsing: data lines are decoded, their
// content deltas concatenated in arrival order, and everything else (event
// names, comments, blank keep-alives) is ignored. Unparseable data lines are
// skipped rather than failing the whole stream, matching how lenient the
// remote service is about interleaving keep-alive noise.
func CollectStream(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var content strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == streamDone {
			break
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
			} else if choice.Message.Content != "" {
				content.WriteString(choice.Message.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("piapi: read stream: %w", err)
	}
	return content.String(), nil
}
