package openai

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// tokenStream implements core.TokenStream over an OpenAI SSE response body.
type tokenStream struct {
	reader   *bufio.Reader
	closer   io.Closer
	err      error
	finished bool
}

// chatChunk is the OpenAI streaming chunk format.
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

func newTokenStream(body io.ReadCloser) *tokenStream {
	return &tokenStream{
		reader: bufio.NewReader(body),
		closer: body,
	}
}

// Next returns the next content token.
// Returns "", io.EOF when the stream is complete.
func (s *tokenStream) Next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.finished {
		return "", io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				s.finished = true
				return "", io.EOF
			}
			s.err = err
			return "", err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Parse SSE format: "data: <json>"
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			s.finished = true
			return "", io.EOF
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // Skip unparseable chunks
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
}

// Close releases resources associated with the stream.
func (s *tokenStream) Close() error {
	return s.closer.Close()
}
