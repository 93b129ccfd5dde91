package main

import "attendance-backend/cmd/attendancectl/arg"

func main() {
	arg.Execute()
}
