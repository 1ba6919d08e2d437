package openai

import (
	"bufio"
	"io"
	"strings"
)

// streamSSE reads a text/event-stream body and invokes onEvent with each
// (event, data) pair. Blank lines delimit events; `[DONE]` terminates.
func streamSSE(r io.Reader, onEvent func(event, data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var event string
	var data strings.Builder

	flush := func() error {
		if data.Len() == 0 && event == "" {
			return nil
		}
		payload := strings.TrimSpace(data.String())
		ev := event
		event = ""
		data.Reset()
		if payload == "" || payload == "[DONE]" {
			return nil
		}
		return onEvent(ev, payload)
	}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := flush(); err != nil {
		return err
	}
	return sc.Err()
}
