package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/wordflowlab/abapagents/pkg/types"
)

// Classify 将底层网络错误归类为 transport / timeout 类别的 types.Error
// 已经带类别的错误和取消错误原样返回
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewTimeoutError(err)
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return types.NewTransportError("ECONNRESET", err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return types.NewTransportError("ECONNREFUSED", err)
	case errors.Is(err, syscall.EPIPE):
		return types.NewTransportError("EPIPE", err)
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return types.NewTimeoutError(err)
		}
		return types.NewTransportError("", err)
	}
	return err
}

// IsBreakerFailure 判断一次调用结果是否计入熔断器失败。
// 只有传输层、超时和服务端 5xx 说明远端不可用; 4xx、认证、参数校验和限流是
// 语义应答, 远端本身正常。未分类的错误按失败计。
func IsBreakerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var te *types.Error
	if !errors.As(err, &te) {
		return true
	}
	switch te.Kind {
	case types.KindTransport, types.KindTimeout:
		return true
	case types.KindRemote, types.KindLLM:
		return te.Status >= 500
	default:
		return false
	}
}
