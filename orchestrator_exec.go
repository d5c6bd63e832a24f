package awmkit

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// externalRunner is the process-invocation seam the orchestrator drives,
// split out so tests can substitute a fake without spawning a real binary.
type externalRunner interface {
	Available() bool
	Embed(ctx context.Context, inputPath, outputPath string, key []byte, strength int, msg []byte) error
	Detect(ctx context.Context, inputPath string, key []byte) (pairDetectResult, error)
}

// processRunner invokes the external watermark binary, assuming a
// subcommand set of at least `embed` and `get`, a strength in [1,30], and
// the message as hex. The key is passed inline as hex via --key-hex; no
// --key or --key-file argument is used.
type processRunner struct {
	execPath string
}

func (p processRunner) Available() bool {
	_, err := exec.LookPath(p.execPath)
	return err == nil
}

func (p processRunner) Embed(ctx context.Context, inputPath, outputPath string, key []byte, strength int, msg []byte) error {
	args := []string{
		"embed",
		"--key-hex", hex.EncodeToString(key),
		"--strength", strconv.Itoa(strength),
		inputPath, outputPath, hex.EncodeToString(msg),
	}
	cmd := exec.CommandContext(ctx, p.execPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("embed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (p processRunner) Detect(ctx context.Context, inputPath string, key []byte) (pairDetectResult, error) {
	args := []string{"get", "--key-hex", hex.EncodeToString(key), inputPath}
	cmd := exec.CommandContext(ctx, p.execPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return pairDetectResult{}, fmt.Errorf("detect: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return parseDetectOutput(string(out))
}

// parseDetectOutput parses the external binary's stdout contract: lines of
// the form "pattern: <all|single|...>", "message: <32 hex chars>",
// "bit_errors: <n>", optional "detect_score: <f>". Output with no pattern
// line means not found; a pattern line without message and bit_errors is
// an error.
func parseDetectOutput(out string) (pairDetectResult, error) {
	var res pairDetectResult
	var pattern string
	var gotPattern, gotMsg, gotErrors bool

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "pattern":
			pattern = val
			gotPattern = true
		case "message":
			raw, err := hex.DecodeString(val)
			if err != nil || len(raw) != MessageLength {
				return pairDetectResult{}, fmt.Errorf("malformed message hex: %q", val)
			}
			copy(res.RawMessage[:], raw)
			gotMsg = true
		case "bit_errors":
			n, err := strconv.Atoi(val)
			if err != nil {
				return pairDetectResult{}, fmt.Errorf("malformed bit_errors: %q", val)
			}
			res.BitErrors = n
			gotErrors = true
		case "detect_score":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return pairDetectResult{}, fmt.Errorf("malformed detect_score: %q", val)
			}
			res.DetectScore = f
		}
	}
	if err := sc.Err(); err != nil {
		return pairDetectResult{}, err
	}
	if !gotPattern {
		res.Found = false
		return res, nil
	}
	if !gotMsg || !gotErrors {
		return pairDetectResult{}, errors.New("detector reported a pattern without message/bit_errors")
	}
	res.Found = pattern == "all" || pattern == "single"
	return res, nil
}
