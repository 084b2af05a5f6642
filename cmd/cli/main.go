package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/downfa11-org/spillq/pkg/config"
	"github.com/downfa11-org/spillq/pkg/controller"
	"github.com/downfa11-org/spillq/pkg/disk"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Println("❌ Failed to load config:", err)
		os.Exit(1)
	}

	dm := disk.NewDiskManager(cfg.SpillDir, disk.Options{})
	ch, err := controller.NewCommandHandler(dm, cfg.Compression)
	if err != nil {
		fmt.Println("❌ Failed to create command handler:", err)
		os.Exit(1)
	}

	fmt.Printf("🔹 Inspecting %s. Type HELP for commands.\n", cfg.SpillDir)
	fmt.Println("")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.EqualFold(strings.TrimSpace(line), "EXIT") {
			break
		}
		fmt.Println(ch.HandleCommand(line))
	}
}
