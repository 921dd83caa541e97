// Package codec 提供消息负载类型注册表
//
// 注册表把"类型 ID ↔ 构造函数 + 编解码器 + 接收回调"组织为标签化变体，
// 取代开放式反射分发：
//
//	reg := codec.NewRegistry()
//	reg.MustRegister(codec.TypeSpec{
//	    ID:    10,
//	    Name:  "echo.request",
//	    New:   func() any { return new(wrapperspb.StringValue) },
//	    Codec: codec.Proto(),
//	    OnMessage: func(ctx interfaces.MessageContext, msg *types.Message) {
//	        _ = ctx.Respond(types.NewMessage(msg.Payload), types.FlagResponse)
//	    },
//	})
//
// 内置类型 BytesTypeID 承载 []byte 与 io.Reader（流式）负载。
package codec
