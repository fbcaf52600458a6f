package main

import (
	"testing"

	_ "github.com/assetdesk/assetdesk/internal/testing/guard"
)

func TestWorkerSkipsStartupInTestMode(t *testing.T) {
	main()
}
