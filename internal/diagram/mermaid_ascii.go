package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rendis/flowchart/pkg/schema"
)

// MermaidASCIIBinary is the file name of the optional mermaid-ascii renderer.
const MermaidASCIIBinary = "mermaid-ascii"

// RenderASCIIAuto tries to render the steps with the mermaid-ascii CLI binary
// found in binDir, falling back to RenderASCII over BuildModel.
func RenderASCIIAuto(ctx context.Context, steps []schema.Step, binDir string) string {
	if binDir != "" {
		binPath := filepath.Join(binDir, MermaidASCIIBinary)
		result, err := RenderASCIIViaCLI(ctx, steps, binPath)
		if err == nil {
			return result
		}
	}
	return RenderASCII(BuildModel(steps))
}

// RenderASCIIViaCLI pipes simplified Mermaid syntax through the mermaid-ascii binary.
func RenderASCIIViaCLI(ctx context.Context, steps []schema.Step, binPath string) (string, error) {
	if _, err := os.Stat(binPath); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeMissingRenderer, "mermaid-ascii not found at %s", binPath).
			WithCause(err)
	}

	cmd := exec.CommandContext(ctx, binPath)
	cmd.Stdin = strings.NewReader(TranslateForCLI(steps))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// TranslateForCLI generates edge-only Mermaid syntax compatible with the
// mermaid-ascii CLI tool, which cannot parse shaped node declarations.
// Step text becomes the node identifier so it is still visible.
func TranslateForCLI(steps []schema.Step) string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	display := make(map[string]string, len(steps)+2)
	display[StartID] = StartID
	display[EndID] = EndID
	used := map[string]bool{StartID: true, EndID: true}
	for i, step := range steps {
		id := cliNodeID(step.Text, StepID(i))
		if used[id] {
			id = fmt.Sprintf("%s-%d", id, i)
		}
		used[id] = true
		display[StepID(i)] = id
	}
	resolve := func(id string) string {
		if d, ok := display[id]; ok {
			return d
		}
		return mermaidSafeID(id)
	}

	fmt.Fprintf(&b, "    %s --> %s\n", StartID, resolve(nextID(0, len(steps))))
	for i, step := range steps {
		from := resolve(StepID(i))
		next := nextID(i+1, len(steps))
		switch step.Type {
		case schema.StepTypeCondition:
			yes, no := next, next
			if step.YesPath != "" {
				yes = step.YesPath
			}
			if step.NoPath != "" {
				no = step.NoPath
			}
			fmt.Fprintf(&b, "    %s -->|Yes| %s\n", from, resolve(yes))
			fmt.Fprintf(&b, "    %s -->|No| %s\n", from, resolve(no))
		case schema.StepTypeInput, schema.StepTypeProcess, schema.StepTypeOutput:
			fmt.Fprintf(&b, "    %s --> %s\n", from, resolve(next))
		}
	}

	return b.String()
}

// cliNodeID builds a display identifier from step text, replacing characters
// mermaid-ascii treats as syntax.
func cliNodeID(text, fallback string) string {
	id := strings.TrimSpace(firstLine(text))
	if id == "" {
		return fallback
	}
	r := strings.NewReplacer(" ", "-", "[", "", "]", "", "{", "", "}", "", "(", "", ")", "", "|", "", "/", "", ">", "", "<", "")
	return r.Replace(id)
}
