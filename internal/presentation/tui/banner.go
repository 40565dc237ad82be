package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner shown when starting a server.
func PrintBanner() {
	p := termenv.ColorProfile()
	// Teal-to-blue gradient, one color per line
	s1 := termenv.String("                                       ").Foreground(p.Color("#2dd4bf"))
	s2 := termenv.String("  ___  ___  _ __  _ __   __ ___   __ ").Foreground(p.Color("#22d3ee"))
	s3 := termenv.String(" / __|/ _ \\| '_ \\| '_ \\ / _` \\ \\ / / ").Foreground(p.Color("#38bdf8"))
	s4 := termenv.String(" \\__ \\ (_) | |_) | | | | (_| |\\ V /  ").Foreground(p.Color("#60a5fa"))
	s5 := termenv.String(" |___/\\___/| .__/|_| |_|\\__,_| \\_/   ").Foreground(p.Color("#818cf8"))
	s6 := termenv.String("           |_|                        ").Foreground(p.Color("#a78bfa"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println(s6)
	fmt.Println()
}
