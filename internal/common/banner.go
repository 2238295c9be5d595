package common

import "github.com/ternarybob/banner"

// PrintBanner prints the startup banner.
func PrintBanner(version string) {
	banner.PrintSimple("Decant", version)
}
