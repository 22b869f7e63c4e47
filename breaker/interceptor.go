package breaker

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// KeyFunc 根据调用信息生成熔断键
type KeyFunc func(ctx context.Context, method string, cc *grpc.ClientConn) string

// KeyByTarget 按连接目标生成熔断键（默认策略）
//
// 同一个下游服务的所有方法共享熔断状态。
func KeyByTarget(ctx context.Context, method string, cc *grpc.ClientConn) string {
	return cc.Target()
}

// KeyByMethod 按完整方法名生成熔断键
func KeyByMethod(ctx context.Context, method string, cc *grpc.ClientConn) string {
	return method
}

// InterceptorOption 拦截器选项
type InterceptorOption func(*interceptorOptions)

type interceptorOptions struct {
	keyFunc KeyFunc
}

// WithKeyFunc 设置熔断键生成策略
func WithKeyFunc(fn KeyFunc) InterceptorOption {
	return func(o *interceptorOptions) {
		if fn != nil {
			o.keyFunc = fn
		}
	}
}

// UnaryClientInterceptor 返回 gRPC 一元调用客户端拦截器
//
// 熔断打开时直接返回 ErrOpenState，不发起网络调用。
// 只有传输类失败（Unavailable / DeadlineExceeded）计入熔断统计，
// 业务层错误（InvalidArgument 等）原样透传、不触发熔断。
func (g *Group) UnaryClientInterceptor(opts ...InterceptorOption) grpc.UnaryClientInterceptor {
	o := &interceptorOptions{keyFunc: KeyByTarget}
	for _, opt := range opts {
		opt(o)
	}

	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		callOpts ...grpc.CallOption,
	) error {
		brk, err := g.Get(o.keyFunc(ctx, method, cc))
		if err != nil {
			return err
		}

		if !brk.CanAttempt() {
			return ErrOpenState
		}

		err = invoker(ctx, method, req, reply, cc, callOpts...)
		if isTransportFailure(err) {
			brk.OnFailure()
		} else {
			brk.OnSuccess()
		}
		return err
	}
}

// isTransportFailure 判断错误是否应计入熔断统计
func isTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
