// Package influxdb records relay activity as InfluxDB time series.
//
// Every dispatch outcome becomes a point in the "dispatch" measurement and
// every validation result a point in "validation", so command latency and
// rejection rates can be graphed alongside other home telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDispatch(influxdb.DispatchPoint{DeviceType: "MainFan", Code: "switch_1", Success: true})
//
// Writes are non-blocking and batched (batch_size, flush_interval). Write
// failures surface asynchronously through SetOnError.
package influxdb
