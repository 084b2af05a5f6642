package controller

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/pkg/disk"
	"github.com/downfa11-org/spillq/util"
)

const helpText = `Available commands:
LIST - list queues under the spill root
LS queue=<name> - list segments with size, sealed flag and item count
STAT queue=<name> - totals for a queue
CAT queue=<name> [limit=<N>] - print spilled records without consuming them
HELP - show this help
EXIT - exit`

// CommandHandler answers read-only inspection commands about spill queues.
// It never opens a writer or reader, so it is safe to point at a directory a
// running process is using.
type CommandHandler struct {
	DiskManager *disk.DiskManager
	codec       codec.Codec[[]byte]
}

// NewCommandHandler inspects queues whose frames were written with the given
// compression type.
func NewCommandHandler(dm *disk.DiskManager, compression string) (*CommandHandler, error) {
	c, err := codec.Compressed(codec.Raw(), compression)
	if err != nil {
		return nil, err
	}
	return &CommandHandler{DiskManager: dm, codec: c}, nil
}

// HandleCommand processes one command line and returns the response text.
func (ch *CommandHandler) HandleCommand(rawCmd string) string {
	cmd := strings.TrimSpace(rawCmd)
	if cmd == "" {
		return "ERROR: empty command"
	}

	name, rest, _ := strings.Cut(cmd, " ")
	args := parseKeyValueArgs(rest)

	var resp string
	switch strings.ToUpper(name) {
	case "HELP":
		resp = helpText
	case "LIST":
		resp = ch.handleList()
	case "LS":
		resp = ch.withQueue(args, "LS queue=<name>", ch.handleLs)
	case "STAT":
		resp = ch.withQueue(args, "STAT queue=<name>", ch.handleStat)
	case "CAT":
		resp = ch.withQueue(args, "CAT queue=<name> [limit=<N>]", func(queue string) string {
			return ch.handleCat(queue, args)
		})
	default:
		resp = fmt.Sprintf("ERROR: unknown command %q. Type HELP for commands.", name)
	}
	ch.logCommandResult(cmd, resp)
	return resp
}

func (ch *CommandHandler) withQueue(args map[string]string, usage string, fn func(string) string) string {
	queue := args["queue"]
	if queue == "" {
		return "ERROR: missing queue parameter. Expected: " + usage
	}
	return fn(queue)
}

func (ch *CommandHandler) handleList() string {
	names, err := ch.DiskManager.Queues()
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	if len(names) == 0 {
		return "(no queues)"
	}
	return strings.Join(names, "\n")
}

func (ch *CommandHandler) handleLs(queue string) string {
	infos, err := disk.InspectDir(ch.DiskManager.Dir(queue), ch.codec, nil)
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	if len(infos) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %10s %7s %7s", "SEGMENT", "BYTES", "SEALED", "ITEMS")
	for _, info := range infos {
		fmt.Fprintf(&b, "\n%-8d %10d %7t %7d", info.Index, info.Size, info.Sealed, info.Items)
		if torn := info.Size - info.ValidBytes; torn > 0 {
			fmt.Fprintf(&b, " (+%d torn bytes)", torn)
		}
	}
	return b.String()
}

func (ch *CommandHandler) handleStat(queue string) string {
	infos, err := disk.InspectDir(ch.DiskManager.Dir(queue), ch.codec, nil)
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	var items, sealed int
	var bytes int64
	for _, info := range infos {
		items += info.Items
		bytes += info.Size
		if info.Sealed {
			sealed++
		}
	}
	return fmt.Sprintf("queue=%s segments=%d sealed=%d items=%d bytes=%d", queue, len(infos), sealed, items, bytes)
}

func (ch *CommandHandler) handleCat(queue string, args map[string]string) string {
	limit := -1
	if s, ok := args["limit"]; ok {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return "ERROR: limit must be a non-negative integer"
		}
		limit = n
	}

	var lines []string
	_, err := disk.InspectDir(ch.DiskManager.Dir(queue), ch.codec, func(idx uint64, item []byte) {
		if limit >= 0 && len(lines) >= limit {
			return
		}
		lines = append(lines, fmt.Sprintf("[%d] %s", idx, item))
	})
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	if len(lines) == 0 {
		return "(empty)"
	}
	return strings.Join(lines, "\n")
}

func (ch *CommandHandler) logCommandResult(cmd, resp string) {
	if strings.HasPrefix(resp, "ERROR:") {
		util.Warn("command %q failed: %s", cmd, resp)
		return
	}
	util.Debug("command %q ok", cmd)
}

// parseKeyValueArgs splits "k1=v1 k2=v2" into a map. Tokens without '=' are
// ignored.
func parseKeyValueArgs(argsStr string) map[string]string {
	result := make(map[string]string)
	for _, part := range strings.Fields(argsStr) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			result[kv[0]] = kv[1]
		}
	}
	return result
}
