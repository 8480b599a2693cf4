package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"sync/atomic"

	"github.com/cornelk/hashmap"
)

const (
	ERROR   = 1
	INFO    = 2
	VERBOSE = 3
	DEBUG   = 7
)

var (
	level   int32 = INFO
	limiter int64
	filter  atomic.Value
	counter *hashmap.HashMap
	std     = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

func init() {
	counter = &hashmap.HashMap{}
}

func SetLevel(l int) {
	atomic.StoreInt32(&level, int32(l))
}

func Level() int {
	return int(atomic.LoadInt32(&level))
}

func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// SetLimiter caps how many times an identical verbose or debug line is printed,
// 0 disables the cap.
func SetLimiter(l int) {
	atomic.StoreInt64(&limiter, int64(l))
}

func SetFilter(pattern string) error {
	if pattern == "" {
		filter.Store((*regexp.Regexp)(nil))
		return nil
	}
	// https://github.com/google/re2/wiki/Syntax
	reg, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	filter.Store(reg)
	return nil
}

func Errorf(format string, v ...interface{}) {
	if Level() >= ERROR {
		std.Output(2, fmt.Sprintf(format, v...))
	}
}

func Println(v ...interface{}) {
	if Level() >= INFO {
		std.Output(2, fmt.Sprintln(v...))
	}
}

func Printf(format string, v ...interface{}) {
	if Level() >= INFO {
		std.Output(2, fmt.Sprintf(format, v...))
	}
}

func Verbosef(format string, v ...interface{}) {
	printfAtLevel(VERBOSE, format, v...)
}

func Debugf(format string, v ...interface{}) {
	printfAtLevel(DEBUG, format, v...)
}

func printfAtLevel(l int, format string, v ...interface{}) {
	if Level() < l {
		return
	}
	out := filterOutput(format, v...)
	if out == "" {
		return
	}
	if !limiterAvailable(out) {
		return
	}
	std.Output(3, out)
}

func limiterAvailable(out string) bool {
	max := atomic.LoadInt64(&limiter)
	if max == 0 {
		return true
	}
	var i int64
	val, _ := counter.GetOrInsert(out, &i)
	actual := (val).(*int64)
	count := atomic.AddInt64(actual, 1) - 1
	return count < max
}

func filterOutput(format string, v ...interface{}) string {
	out := fmt.Sprintf(format, v...)
	reg, _ := filter.Load().(*regexp.Regexp)
	if reg == nil || reg.MatchString(out) {
		return out
	}
	return ""
}
