/*
Package command implements the command channel protocol: issuing command lines and demultiplexing the controller's unframed replies.

The controller writes three kinds of traffic to the same socket:

 1. bracketed status tokens such as "<Idle|MPos:0.0000,0.0000,0.0000>\n", which are routed to the query result sink;
 2. replies to a structured query (for example the file listing answered to M20, ending with "End file list"), which are
    handed to the installed capture handler;
 3. everything else, which is shown line by line on the display unless the last command asked for silence.

There is no framing and no request ID. A capture handler stays installed until its terminator line arrives, and the silence
flag reflects only the most recently issued command, so callers must serialize commands whose routing differs.
*/
package command
