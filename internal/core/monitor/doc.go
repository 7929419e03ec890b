// Package monitor 实现连通性监视器
//
// 周期性向共享图的专属探测路径写入时间戳并读回，写入到读回的
// 耗时即往返时延。连续失败达到阈值视为断开；时延越过退化阈值
// 或偶发失败视为退化。探测独立于任何上层协议。
package monitor
