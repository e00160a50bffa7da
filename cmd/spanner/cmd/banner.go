package cmd

import (
	"fmt"
)

const banner = `
  ___ _ __   __ _ _ __  _ __   ___ _ __
 / __| '_ \ / _' | '_ \| '_ \ / _ \ '__|
 \__ \ |_) | (_| | | | | | | |  __/ |
 |___/ .__/ \__,_|_| |_|_| |_|\___|_|
     |_|
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Session middleware - Version %s\x1b[0m\n\n", Version)
}
