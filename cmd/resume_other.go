//go:build !unix

package cmd

import "context"

func watchResume(context.Context, func()) func() {
	return func() {}
}
