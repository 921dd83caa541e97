package msgrpc

// Version 库版本
const Version = "v0.3.0"
