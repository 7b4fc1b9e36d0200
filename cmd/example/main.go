package main

import (
	"fmt"
	"time"

	"github.com/Reddan/checkpointer"
)

func main() {
	cached, err := checkpointer.Configure(heavyComputation, &checkpointer.Config{
		Storage:   "memory",
		Verbosity: 2,
	})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Printf("[%v] Starting heavy computation...\n", time.Now().Truncate(time.Second))
	res, err := cached.Call(2000 * time.Millisecond)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("[%v] Heavy computation completed, result - %s.\n", time.Now().Truncate(time.Second), res)

	fmt.Printf("[%v] Starting cached heavy computation...\n", time.Now().Truncate(time.Second))
	res, err = cached.Call(2000 * time.Millisecond)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("[%v] Heavy computation completed, result cached - %s.\n", time.Now().Truncate(time.Second), res)
}

func heavyComputation(t time.Duration) (string, error) {
	time.Sleep(t)
	return "cached value", nil
}
