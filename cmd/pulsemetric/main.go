package main

import "github.com/ycagraoglu/PulseMetric-sub001/internal/cli"

func main() {
	cli.Execute()
}
