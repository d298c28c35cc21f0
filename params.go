/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import "strconv"

// isEven matches path segments holding an even base-10 integer.
func isEven(param string) bool {
	n, err := strconv.Atoi(param)

	return err == nil && n%2 == 0
}
