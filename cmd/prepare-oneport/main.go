package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/practable/calibration/pkg/prep"
)

func main() {
	testDir := flag.String("test", "test", "Fixture tree root (measured inputs, expected and json outputs)")
	imgDir := flag.String("img", "img", "Diagnostic plot tree root")
	flag.Parse()

	fmt.Println("--- One-Port Fixture Preparation ---")
	fmt.Printf("Fixtures: %s | Plots: %s\n", *testDir, *imgDir)
	fmt.Println(">>> CALIBRATING...")

	result, err := prep.RunOnePort(prep.OnePortConfig{
		TestDir: *testDir,
		ImgDir:  *imgDir,
	})
	if err != nil {
		log.Fatalf("Preparation failed: %v", err)
	}

	fmt.Println("--- Results ---")
	fmt.Printf("Points:   %d\n", result.Points)
	fmt.Printf("Expected: %s\n", result.Expected)
	fmt.Printf("Request:  %s\n", result.Request)
	for _, p := range result.Plots {
		fmt.Printf("Plot:     %s\n", p)
	}
}
